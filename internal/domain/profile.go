package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

const (
	ProfileTypeBusiness   = "business"
	ProfileTypeIndividual = "individual"
)

const (
	msgRequiredField = "this field is required"
	msgInvalidType   = "invalid type"
	msgEmptyValue    = "this value is required"
	msgInvalidEmail  = "Email address is invalid"
	msgTypeRequired  = "Profile type is required"
	msgTypeInvalid   = "Invalid profile type"
)

var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// Profile is one of IndividualProfile or BusinessProfile, chosen by the
// "type" field.
type Profile interface {
	ProfileType() string
	DisplayName() string
}

type ProfileContact struct {
	Type          string `mapstructure:"type"`
	VendorAddress string `mapstructure:"vendorAddress" validate:"min=1"`
	Email         string `mapstructure:"email" validate:"chlu_email"`
}

type IndividualProfile struct {
	ProfileContact `mapstructure:",squash"`
	Username       string `mapstructure:"username" validate:"max=25,min=1"`
	Firstname      string `mapstructure:"firstname" validate:"max=60,min=1"`
	Lastname       string `mapstructure:"lastname" validate:"max=60,min=1"`
}

func (IndividualProfile) ProfileType() string { return ProfileTypeIndividual }

func (p IndividualProfile) DisplayName() string {
	name := p.Firstname
	if p.Lastname != "" {
		name += " " + p.Lastname
	}
	if p.Username != "" {
		name += " (" + p.Username + ")"
	}
	return name
}

type BusinessProfile struct {
	ProfileContact `mapstructure:",squash"`
	Businessname   string `mapstructure:"businessname" validate:"max=120,min=1"`
}

func (BusinessProfile) ProfileType() string { return ProfileTypeBusiness }

func (p BusinessProfile) DisplayName() string {
	return p.Businessname
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func profileValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			return name
		})
		_ = v.RegisterValidation("chlu_email", func(fl validator.FieldLevel) bool {
			return emailPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

type fieldRule struct {
	name  string
	email bool
}

var (
	contactRules    = []fieldRule{{name: "vendorAddress"}, {name: "email", email: true}}
	individualRules = []fieldRule{{name: "username"}, {name: "firstname"}, {name: "lastname"}}
	businessRules   = []fieldRule{{name: "businessname"}}
)

// ParseProfile validates a raw profile and returns its typed variant. On
// failure the error is a ValidationFailed *Error whose Data maps each
// offending field to a message.
func ParseProfile(raw map[string]any) (Profile, error) {
	errs := map[string]string{}

	kind, _ := raw["type"].(string)
	switch {
	case raw["type"] == nil || kind == "":
		errs["type"] = msgTypeRequired
	case kind != ProfileTypeBusiness && kind != ProfileTypeIndividual:
		errs["type"] = msgTypeInvalid
	}

	rules := individualRules
	var target Profile = &IndividualProfile{}
	if kind == ProfileTypeBusiness {
		rules = businessRules
		target = &BusinessProfile{}
	}
	for _, rule := range append(append([]fieldRule{}, contactRules...), rules...) {
		value, ok := raw[rule.name]
		if !ok {
			errs[rule.name] = msgRequiredField
			continue
		}
		if _, isString := value.(string); !isString {
			if rule.email {
				errs[rule.name] = msgInvalidEmail
			} else {
				errs[rule.name] = msgInvalidType
			}
		}
	}

	decoded := map[string]any{}
	for _, rule := range append(append([]fieldRule{}, contactRules...), rules...) {
		if s, ok := raw[rule.name].(string); ok {
			decoded[rule.name] = s
		}
	}
	decoded["type"] = kind
	if err := mapstructure.Decode(decoded, target); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	if err := profileValidator().Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate profile: %w", err)
		}
		for _, fe := range fieldErrs {
			if _, seen := errs[fe.Field()]; seen {
				continue
			}
			errs[fe.Field()] = fieldMessage(fe)
		}
	}

	if len(errs) > 0 {
		return nil, ValidationError(errs)
	}
	switch p := target.(type) {
	case *BusinessProfile:
		return *p, nil
	case *IndividualProfile:
		return *p, nil
	}
	return target, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("too long (max length %s)", fe.Param())
	case "min":
		return msgEmptyValue
	case "chlu_email":
		return msgInvalidEmail
	default:
		return msgInvalidType
	}
}

// WithDisplayName returns a copy of raw carrying the derived "name" field.
func WithDisplayName(raw map[string]any, p Profile) map[string]any {
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out["name"] = p.DisplayName()
	return out
}

// MergeProfile overlays patch onto base without mutating either.
func MergeProfile(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
