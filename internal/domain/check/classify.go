package check

const unreachableReason = "unreachable"

type Classification struct {
	Status         Status
	StatusCode     *int
	ResponseTimeMS *int64
	ErrorMessage   *string
}

// Classify maps a probe outcome onto the stored check fields.
// A response counts as success only for status codes 200..399. Transport
// failures carry an error message and nothing else.
func Classify(o Outcome) Classification {
	switch v := o.(type) {
	case Responded:
		return classifyResponse(v)
	case *Responded:
		if v != nil {
			return classifyResponse(*v)
		}
	case Unreachable:
		return classifyUnreachable(v.Reason)
	case *Unreachable:
		if v != nil {
			return classifyUnreachable(v.Reason)
		}
	}
	return classifyUnreachable("")
}

func classifyResponse(r Responded) Classification {
	code := r.StatusCode
	elapsed := r.ElapsedMS
	if elapsed < 0 {
		elapsed = 0
	}
	status := StatusFailed
	if code >= 200 && code <= 399 {
		status = StatusSuccess
	}
	return Classification{
		Status:         status,
		StatusCode:     &code,
		ResponseTimeMS: &elapsed,
	}
}

func classifyUnreachable(reason string) Classification {
	if reason == "" {
		reason = unreachableReason
	}
	return Classification{
		Status:       StatusFailed,
		ErrorMessage: &reason,
	}
}
