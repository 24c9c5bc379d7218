package prescription

import "github.com/ridgeline-health/dispense/pkg/errtax"

func errInvalidTransition(from, to string) error {
	return errtax.New(errtax.CodeInvalidTransition, "cannot transition from "+from+" to "+to)
}

func errConcurrentMutation(id string) error {
	return errtax.New(errtax.CodeConcurrentMutation, "prescription "+id+" was modified by another writer")
}

func errMissingRequired(field string) error {
	return errtax.New(errtax.CodeMissingRequired, "required field missing").WithField(field)
}

func errtaxInvalidField(field, message string) error {
	return errtax.New(errtax.CodeInvalidField, message).WithField(field)
}
