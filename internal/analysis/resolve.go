package analysis

// Resolution tells how a final response was turned into a Result.
type Resolution int

const (
	// ResolutionParsed means the response, or the object embedded in it,
	// was valid JSON.
	ResolutionParsed Resolution = iota
	// ResolutionRecovered means fields were salvaged from malformed JSON.
	ResolutionRecovered
	// ResolutionRawText means nothing structured was found and the whole
	// response became the analysis.
	ResolutionRawText
)

func (r Resolution) String() string {
	switch r {
	case ResolutionParsed:
		return "parsed"
	case ResolutionRecovered:
		return "recovered"
	case ResolutionRawText:
		return "raw_text"
	default:
		return "unknown"
	}
}

// Report is a resolved Result together with how it was obtained.
type Report struct {
	Result     Result
	Resolution Resolution
	// Issues lists schema violations of a parsed response.
	Issues []string
}

// Incomplete reports whether the result is a degraded rendition of the
// response.
func (r Report) Incomplete() bool {
	return r.Resolution != ResolutionParsed || len(r.Issues) > 0
}

// ResolveFinal converts a complete response into a Result.
func ResolveFinal(text string) Result {
	return Resolve(text).Result
}

// Resolve converts a complete response into a Result, trying in order a
// strict parse of the fence-stripped text, a strict parse of its first
// balanced object, partial extraction, and finally the raw text itself.
func Resolve(text string) Report {
	cleaned := stripFences(text)

	if res, ok := parseStrict(cleaned); ok {
		return parsedReport(res, cleaned)
	}

	if object, ok := balancedObject(cleaned); ok {
		if res, ok := parseStrict(object); ok {
			return parsedReport(res, object)
		}
	}

	if res := ExtractPartial(text); !res.IsEmpty() {
		return Report{Result: res, Resolution: ResolutionRecovered}
	}

	return Report{
		Result:     Result{Analysis: text},
		Resolution: ResolutionRawText,
	}
}

func parsedReport(res Result, document string) Report {
	return Report{
		Result:     res,
		Resolution: ResolutionParsed,
		Issues:     validate(document),
	}
}
