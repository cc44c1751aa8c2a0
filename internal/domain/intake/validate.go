package intake

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Questionnaire is the schema for the recognized fields.
type Questionnaire struct {
	Age                *int           `json:"age,omitempty" validate:"omitempty,gte=0,lte=120"`
	Gender             *string        `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Weight             *float64       `json:"weight,omitempty" validate:"omitempty,gte=20,lte=300"`
	Height             *int           `json:"height,omitempty" validate:"omitempty,gte=100,lte=250"`
	ChronicDiseases    []string       `json:"chronic_diseases,omitempty"`
	CurrentMedications []string       `json:"current_medications,omitempty"`
	Symptoms           []string       `json:"symptoms,omitempty"`
	Lifestyle          map[string]any `json:"lifestyle,omitempty"`
	Goals              []string       `json:"goals,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func schema() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

var recognized = map[string]bool{
	FieldAge: true, FieldGender: true, FieldWeight: true, FieldHeight: true,
	FieldChronicDiseases: true, FieldCurrentMedications: true, FieldSymptoms: true,
	FieldGoals: true, FieldLifestyle: true,
}

// Normalize checks the recognized fields and returns a copy with them in canonical
// form (typed, nulls dropped). Unrecognized fields are carried over untouched.
// On failure the returned error is a *ValidationError and the answers are nil.
func Normalize(a Answers) (Answers, error) {
	known := make(map[string]any, len(a))
	for k, v := range a {
		if recognized[k] && v != nil {
			known[k] = v
		}
	}

	raw, err := json.Marshal(known)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	var q Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		var fields []string
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			fields = append(fields, te.Field)
		}
		return nil, &ValidationError{Fields: fields, Err: err}
	}
	if err := schema().Struct(q); err != nil {
		var fields []string
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				fields = append(fields, fe.Field())
			}
		}
		return nil, &ValidationError{Fields: fields, Err: err}
	}

	// back to a mapping so callers keep a single answers type
	norm, err := json.Marshal(q)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	out := Answers{}
	if err := json.Unmarshal(norm, &out); err != nil {
		return nil, &ValidationError{Err: err}
	}
	for k, v := range a {
		if !recognized[k] {
			out[k] = v
		}
	}
	return out, nil
}
