package perthread

import "errors"

// ErrInvalidProducer is raised when WithInitial or NewInheritable is
// given a nil producer. It surfaces immediately, at construction time.
var ErrInvalidProducer = errors.New("perthread: initial value producer must not be nil")

// ErrInheritanceNotSupported is returned by a handle's childValue hook
// when the handle never opted into the inheritance protocol via
// NewInheritable. Handle, Get, Set and Remove never trigger it: the
// inheritance-seeding routine only calls childValue on entries whose
// handle already advertises support for it.
var ErrInheritanceNotSupported = errors.New("perthread: handle does not support inheritance")
