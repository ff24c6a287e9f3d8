package composite

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ErrCompilationFailed is matched (errors.Is) by every *CompilationFailedError.
var ErrCompilationFailed = errors.New("compilation failed")

// Attempt records why one backend did not compile a node.
type Attempt struct {
	Backend string
	Reason  string
}

// CompilationFailedError reports a node no backend in the list could compile.
type CompilationFailedError struct {
	NodeIndex int
	NodeName  string
	OpType    string
	Attempts  []Attempt
}

// Error implements error.
func (e *CompilationFailedError) Error() string {
	tried := lo.Map(e.Attempts, func(a Attempt, _ int) string {
		return fmt.Sprintf("%s: %s", a.Backend, a.Reason)
	})
	return fmt.Sprintf("compilation failed: node %d %q (%s): no backend can compile it [%s]",
		e.NodeIndex, e.NodeName, e.OpType, strings.Join(tried, "; "))
}

// Is makes errors.Is(err, ErrCompilationFailed) hold.
func (e *CompilationFailedError) Is(target error) bool {
	return target == ErrCompilationFailed
}
