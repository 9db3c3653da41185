package models

import "time"

// Evolved-skill review states. Submissions scoring at or above the
// auto-approval threshold skip human review.
const (
	SkillStatusApproved      = "approved"
	SkillStatusPendingReview = "pending_review"
)

// EvolvedSkill is a skill the execution plane derived during a session and
// submitted back for review and reuse.
type EvolvedSkill struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	AgentID      string         `json:"agent_id,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Code         string         `json:"code,omitempty"`
	QualityScore float64        `json:"quality_score"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SkillDefinition maps a public skill id to its current package.
type SkillDefinition struct {
	ID        string `json:"id"`
	SkillID   string `json:"skill_id"`
	PackageID string `json:"package_id"`
}

// SkillPackageRecord locates a skill package on the filesystem.
type SkillPackageRecord struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	Path         string `json:"path"`
}

// SkillFile is one file of a loaded skill package, always UTF-8 text.
type SkillFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FileInventory summarizes which optional pieces of a package are present.
type FileInventory struct {
	HasSkillMD     bool     `json:"has_skill_md"`
	HasScripts     bool     `json:"has_scripts"`
	HasReferences  bool     `json:"has_references"`
	ScriptFiles    []string `json:"script_files"`
	ReferenceFiles []string `json:"reference_files"`
}

// SkillPackage is the fully loaded package returned by get_skill_package.
type SkillPackage struct {
	SkillID       string        `json:"skill_id"`
	Version       string        `json:"version"`
	Files         []SkillFile   `json:"files"`
	FileInventory FileInventory `json:"file_inventory"`
}
