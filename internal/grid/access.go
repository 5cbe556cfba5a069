package grid

import "fmt"

// AccessMode is the state of a grid's access session.
type AccessMode int

const (
	None AccessMode = iota
	Read
	Write
	ReadAndWrite
	RandomAccess
)

func (m AccessMode) String() string {
	switch m {
	case None:
		return "NONE"
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadAndWrite:
		return "READANDWRITE"
	case RandomAccess:
		return "RANDOMACCESS"
	}
	return fmt.Sprintf("AccessMode(%d)", int(m))
}

type capability uint8

const (
	capRead capability = 1 << iota
	capWrite
	capRandom
	capBulk
)

// transitions lists the legal session changes. Opening is only legal from
// None and every open session can only return to None.
var transitions = map[AccessMode][]AccessMode{
	None:         {Read, Write, ReadAndWrite, RandomAccess},
	Read:         {None},
	Write:        {None},
	ReadAndWrite: {None},
	RandomAccess: {None},
}

// modeCaps lists what each mode permits. Bulk covers algebra, transforms and
// persistence, which run either outside a session or inside RandomAccess.
var modeCaps = map[AccessMode]capability{
	None:         capBulk,
	Read:         capRead,
	Write:        capWrite,
	ReadAndWrite: capRead | capWrite,
	RandomAccess: capRandom | capBulk,
}

// CanTransition reports whether a session may move from one mode to another.
func CanTransition(from, to AccessMode) bool {
	for _, m := range transitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// PreconditionError describes a violated access or domain precondition.
// It is raised with panic; callers are expected to respect the ordering
// discipline rather than recover from it.
type PreconditionError struct {
	Op     string
	Mode   AccessMode
	Domain Domain
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("grid: %s not allowed (mode=%s domain=%s): %s", e.Op, e.Mode, e.Domain, e.Reason)
}

func violate(op string, mode AccessMode, domain Domain, format string, v ...interface{}) {
	panic(&PreconditionError{Op: op, Mode: mode, Domain: domain, Reason: fmt.Sprintf(format, v...)})
}

// session is the state machine embedded by both realizations.
type session struct {
	mode AccessMode
}

func (s *session) Mode() AccessMode { return s.mode }

func (s *session) open(op string, domain Domain, to AccessMode) {
	if to == None || !CanTransition(s.mode, to) {
		violate(op, s.mode, domain, "cannot open %s session", to)
	}
	s.mode = to
}

func (s *session) require(op string, domain Domain, c capability) {
	if modeCaps[s.mode]&c == 0 {
		violate(op, s.mode, domain, "operation not permitted in this mode")
	}
}

func (s *session) requireNone(op string, domain Domain) {
	if s.mode != None {
		violate(op, s.mode, domain, "an access session is open")
	}
}
