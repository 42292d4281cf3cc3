package types

import (
	"sync"

	"github.com/agentic/runtime/pkg/models"
)

// ArtifactKind is the closed set of Artifact.Kind values from spec §3.
type ArtifactKind string

const (
	ArtifactContextPacket ArtifactKind = "context_packet"
	ArtifactToolResult    ArtifactKind = "tool_result"
	ArtifactDiagnostic    ArtifactKind = "diagnostic"
	ArtifactAnswerDraft   ArtifactKind = "answer_draft"
	ArtifactFinalAnswer   ArtifactKind = "final_answer"
)

// Binary is the optional binary payload a ContextPacket may carry; binary-
// bearing packets contribute file attachments to the final TurnResult.
type Binary struct {
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
}

// ContextPacket is the named context blob produced by a context provider.
type ContextPacket struct {
	Name         string          `json:"name"`
	Content      string          `json:"content"`
	JSON         map[string]any  `json:"json,omitempty"`
	Binary       *Binary         `json:"binary,omitempty"`
	TokenEstimate int            `json:"tokenEstimate"`
}

// Artifact is one entry on the Blackboard's ordered artifact list.
type Artifact struct {
	ID           string         `json:"id"`
	Kind         ArtifactKind   `json:"kind"`
	Label        string         `json:"label"`
	Content      string         `json:"content"`
	Confidence   float64        `json:"confidence"`
	SourceAgent  string         `json:"sourceAgent"`
	Provenance   []string       `json:"provenance,omitempty"`
	Packet       *ContextPacket `json:"packet,omitempty"`
	JSON         map[string]any `json:"json,omitempty"`

	// Type/MimeType/Filename/URL/Data let a binary-carrying artifact become
	// a models.Attachment on the final reply without a second type.
	Type     string `json:"type,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Counters tracks Blackboard-wide turn progress.
type Counters struct {
	CompletedTasks      int
	FailedTasks         int
	TotalEstimatedTokens int
}

// Blackboard is the per-turn mutable state, owned exclusively by the
// orchestrator for the duration of one turn (spec §3). It is not safe to
// share across turns; the mutex only guards concurrent writes from graph
// executor goroutines within a single turn.
type Blackboard struct {
	mu                 sync.Mutex
	Counters           Counters
	Artifacts          []Artifact
	UnresolvedQuestions []string
}

// NewBlackboard returns an empty, turn-scoped Blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{}
}

// AddArtifact appends an artifact and updates token accounting.
func (b *Blackboard) AddArtifact(a Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Artifacts = append(b.Artifacts, a)
	if a.Packet != nil {
		b.Counters.TotalEstimatedTokens += a.Packet.TokenEstimate
	}
}

// RecordTaskResult bumps the completed/failed counters.
func (b *Blackboard) RecordTaskResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.Counters.CompletedTasks++
	} else {
		b.Counters.FailedTasks++
	}
}

// AddUnresolvedQuestion records a question the graph could not resolve
// (e.g. an unreachable dependency).
func (b *Blackboard) AddUnresolvedQuestion(q string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UnresolvedQuestions = append(b.UnresolvedQuestions, q)
}

// Snapshot returns a copy of the artifact list and counters for read-only
// consumers (the context-graph executor's return value, trace building).
func (b *Blackboard) Snapshot() (Counters, []Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	artifacts := make([]Artifact, len(b.Artifacts))
	copy(artifacts, b.Artifacts)
	return b.Counters, artifacts
}

// ArtifactsToAttachments converts binary-bearing artifacts into reply
// attachments, mirroring the teacher's artifact->attachment conversion.
func ArtifactsToAttachments(artifacts []Artifact) []models.Attachment {
	var out []models.Attachment
	for _, art := range artifacts {
		if len(art.Data) == 0 && art.URL == "" {
			continue
		}
		attType := art.Type
		if attType == "" {
			attType = "file"
		}
		out = append(out, models.Attachment{
			ID:       art.ID,
			Type:     attType,
			Filename: art.Filename,
			MimeType: art.MimeType,
			Size:     int64(len(art.Data)),
			URL:      art.URL,
		})
	}
	return out
}
