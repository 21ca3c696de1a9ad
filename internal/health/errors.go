package health

import "fmt"

// DomainNotFoundError reports a domain with no member workflows. It maps to
// a 404 and is never cached, so a domain that later appears is not hidden.
type DomainNotFoundError struct {
	Domain string
}

func (e *DomainNotFoundError) Error() string {
	return fmt.Sprintf("no workflows found for domain %q", e.Domain)
}
