package sanitize

import "github.com/go-playground/validator/v10"

// Options selects which families of active content the sanitizer
// neutralizes. All three default to true in DefaultOptions, matching the
// behavior expected of user-facing flows.
type Options struct {
	RemoveLinks      bool `validate:"-"`
	RemoveForms      bool `validate:"-"`
	RemoveJavascript bool `validate:"-"`
}

// DefaultOptions returns the all-true configuration.
func DefaultOptions() Options {
	return Options{RemoveLinks: true, RemoveForms: true, RemoveJavascript: true}
}

// Validate runs struct-tag validation over Options. The three fields carry
// no constraints of their own (any bool is legal), but routing construction
// through validator.v10 keeps Options consistent with every other
// configuration type in the module and gives future fields a validation
// path for free.
func (o Options) Validate() error {
	return validator.New().Struct(o)
}

// dangerousActionTypes returns the set of action-dictionary /S values this sanitization
// pass treats as dangerous, per rule 8 of the byte-level catalog.
func (o Options) dangerousActionTypes() []string {
	if o.RemoveLinks {
		return []string{"URI", "Launch", "GoToR", "GoToE", "SubmitForm", "ImportData", "JavaScript"}
	}
	if o.RemoveJavascript {
		return []string{"JavaScript"}
	}
	return nil
}

// stripAdditionalActions reports whether document- and page-level /AA
// dictionaries should be removed. Either removeLinks or removeJavascript
// on its own strips /AA.
func (o Options) stripAdditionalActions() bool {
	return o.RemoveLinks || o.RemoveJavascript
}
