package state

import "fmt"

// Flag names one AI substage milestone within a turn.
type Flag int

const (
	FlagAnalysis Flag = iota
	FlagSearch
	FlagResult
)

func (f Flag) String() string {
	switch f {
	case FlagAnalysis:
		return "analysis_done"
	case FlagSearch:
		return "search_done"
	case FlagResult:
		return "result_found"
	default:
		return fmt.Sprintf("flag(%d)", int(f))
	}
}

// Flags are the monotonic substage markers of the current turn.
type Flags struct {
	AnalysisDone bool `json:"analysis_done"`
	SearchDone   bool `json:"search_done"`
	ResultFound  bool `json:"result_found"`
}

func (f *Flags) set(flag Flag) error {
	switch flag {
	case FlagAnalysis:
		f.AnalysisDone = true
	case FlagSearch:
		if !f.AnalysisDone {
			return fmt.Errorf("%s before %s", flag, FlagAnalysis)
		}
		f.SearchDone = true
	case FlagResult:
		if !f.SearchDone {
			return fmt.Errorf("%s before %s", flag, FlagSearch)
		}
		f.ResultFound = true
	default:
		return fmt.Errorf("unknown substage %s", flag)
	}
	return nil
}
