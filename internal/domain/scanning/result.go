package scanning

// Verdict names the classification carried by a Result. It exists for
// logging and metrics labels; consumers branch on the Result type itself.
type Verdict string

const (
	VerdictClean    Verdict = "CLEAN"
	VerdictInfected Verdict = "INFECTED"
	VerdictError    Verdict = "ERROR"
)

func (v Verdict) String() string { return string(v) }

// Result is the outcome of scanning a single file. It is a closed set:
// CleanResult, InfectedResult and ErrorResult are the only implementations.
// Consumers should type-switch over all three.
type Result interface {
	Path() string
	Verdict() Verdict
	sealed()
}

// CleanResult reports a readable file whose digest is not a known signature.
type CleanResult struct {
	path   string
	digest string
}

// NewCleanResult creates a CleanResult.
func NewCleanResult(path, digest string) CleanResult {
	return CleanResult{path: path, digest: digest}
}

func (r CleanResult) Path() string     { return r.path }
func (r CleanResult) Digest() string   { return r.digest }
func (r CleanResult) Verdict() Verdict { return VerdictClean }
func (CleanResult) sealed()            {}

// InfectedResult reports a file whose digest matched a known signature.
type InfectedResult struct {
	path   string
	digest string
}

// NewInfectedResult creates an InfectedResult.
func NewInfectedResult(path, digest string) InfectedResult {
	return InfectedResult{path: path, digest: digest}
}

func (r InfectedResult) Path() string     { return r.path }
func (r InfectedResult) Digest() string   { return r.digest }
func (r InfectedResult) Verdict() Verdict { return VerdictInfected }
func (InfectedResult) sealed()            {}

// ErrorResult reports a file that could not be opened or read.
type ErrorResult struct {
	path    string
	message string
}

// NewErrorResult creates an ErrorResult from the failure that caused it.
func NewErrorResult(path string, err error) ErrorResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ErrorResult{path: path, message: msg}
}

func (r ErrorResult) Path() string     { return r.path }
func (r ErrorResult) Message() string  { return r.message }
func (r ErrorResult) Verdict() Verdict { return VerdictError }
func (ErrorResult) sealed()            {}
