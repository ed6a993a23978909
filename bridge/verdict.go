package bridge

import (
	"fmt"
	"strings"

	"github.com/c360/omprogbridge/metric"
)

// Verdict is the single acknowledgement line written for a submission window.
type Verdict string

const (
	// VerdictOK reports an accepted, and if non-empty successfully forwarded, batch.
	VerdictOK Verdict = "OK"
	// VerdictDeferCommit acknowledges a record buffered inside an open transaction.
	VerdictDeferCommit Verdict = "DEFER_COMMIT"
)

// Error verdict prefixes. The host treats any other line as a failure.
const (
	publisherErrorPrefix = "Publisher error: "
	reconcileErrorPrefix = "Publisher send_async: "
)

func publisherError(code string) Verdict {
	return Verdict(publisherErrorPrefix + sanitize(code))
}

func reconcileTimeout(got, want int) Verdict {
	return Verdict(fmt.Sprintf("%sgot %d results, expecting %d", reconcileErrorPrefix, got, want))
}

// sanitize keeps an error verdict on a single line.
func sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsError reports whether v is neither OK nor DEFER_COMMIT.
func (v Verdict) IsError() bool {
	return v != VerdictOK && v != VerdictDeferCommit
}

func (v Verdict) String() string {
	return string(v)
}

// label maps the verdict onto the verdicts_total label values.
func (v Verdict) label() string {
	switch v {
	case VerdictOK:
		return metric.VerdictOK
	case VerdictDeferCommit:
		return metric.VerdictDefer
	default:
		return metric.VerdictError
	}
}
