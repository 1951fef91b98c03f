package usecase

import "github.com/example/trustlens/internal/inference"

// ImageInfo describes the selected file without its bytes.
type ImageInfo struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"size_label"`
}

// VerdictView carries presentation-only derivations of a result.
type VerdictView struct {
	Category          VerdictCategory `json:"category"`
	ConfidencePercent *float64        `json:"confidence_percent,omitempty"`
}

// ErrorView is the user-visible failure of the session.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is the read model of a session at one instant.
type Snapshot struct {
	SessionID        string                    `json:"session_id"`
	State            State                     `json:"state"`
	Image            *ImageInfo                `json:"image,omitempty"`
	PreviewReady     bool                      `json:"preview_ready"`
	Result           *inference.AnalysisResult `json:"result,omitempty"`
	Verdict          *VerdictView              `json:"verdict,omitempty"`
	Error            *ErrorView                `json:"error,omitempty"`
	CredentialPrompt bool                      `json:"credential_prompt"`
	CanAnalyze       bool                      `json:"can_analyze"`
	CanRetry         bool                      `json:"can_retry"`
}

func (c *SessionController) snapshotLocked() Snapshot {
	state := c.stateLocked()
	snap := Snapshot{
		SessionID:        c.id,
		State:            state,
		PreviewReady:     c.preview != "",
		CredentialPrompt: c.promptVisible,
		CanAnalyze:       c.image != nil && !c.analyzing,
		CanRetry:         state == StateAnalysisFailed && c.image != nil,
	}

	if c.image != nil {
		snap.Image = &ImageInfo{
			Name:      c.image.Name,
			MIMEType:  c.image.MIMEType,
			Size:      c.image.Size(),
			SizeLabel: c.image.SizeLabel(),
		}
	}

	if c.err != nil {
		snap.Error = &ErrorView{Kind: c.err.kind, Message: c.err.message}
	}

	if c.result != nil && !c.analyzing {
		snap.Result = c.result.Clone()
		view := &VerdictView{Category: ClassifyVerdict(c.result.Verdict)}
		if pct, ok := ParseConfidencePercent(c.result.Confidence); ok {
			view.ConfidencePercent = &pct
		}
		snap.Verdict = view
	}
	return snap
}
