package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// Each of scripts/ and references/ contributes at most this many files to a
// loaded package. Listing is non-recursive.
const maxPackageDirFiles = 20

// SkillService persists evolved-skill submissions and loads skill packages
// from the filesystem for delivery to the execution plane.
type SkillService struct {
	pool *pgxpool.Pool
}

// NewSkillService creates a new SkillService
func NewSkillService(pool *pgxpool.Pool) *SkillService {
	return &SkillService{pool: pool}
}

// CreateEvolvedSkill stores a skill submission with the status already
// decided by the caller.
func (s *SkillService) CreateEvolvedSkill(ctx context.Context, skill models.EvolvedSkill) (*models.EvolvedSkill, error) {
	if skill.OrgID == "" {
		return nil, NewValidationError("org_id", "required")
	}
	if skill.Name == "" {
		return nil, NewValidationError("name", "required")
	}

	var metadata []byte
	if skill.Metadata != nil {
		var err error
		metadata, err = json.Marshal(skill.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal skill metadata: %w", err)
		}
	}

	skill.ID = uuid.NewString()
	skill.CreatedAt = time.Now().UTC()

	var agentID, sessionID any
	if _, err := uuid.Parse(skill.AgentID); err == nil {
		agentID = skill.AgentID
	}
	if _, err := uuid.Parse(skill.SessionID); err == nil {
		sessionID = skill.SessionID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evolved_skills (id, org_id, agent_id, session_id, name, description,
			code, quality_score, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		skill.ID, skill.OrgID, agentID, sessionID, skill.Name, skill.Description,
		skill.Code, skill.QualityScore, skill.Status, metadata, skill.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert evolved skill: %w", err)
	}
	return &skill, nil
}

// FindDefinitionBySkillID resolves a public skill id to its definition row.
func (s *SkillService) FindDefinitionBySkillID(ctx context.Context, skillID string) (*models.SkillDefinition, error) {
	var def models.SkillDefinition
	err := s.pool.QueryRow(ctx, `
		SELECT id, skill_id, package_id FROM skill_definitions WHERE skill_id = $1`,
		skillID).Scan(&def.ID, &def.SkillID, &def.PackageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query skill definition: %w", err)
	}
	return &def, nil
}

// FindPackageByDefinition returns the package record for a definition.
func (s *SkillService) FindPackageByDefinition(ctx context.Context, definitionID string) (*models.SkillPackageRecord, error) {
	var rec models.SkillPackageRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, definition_id, path FROM skill_packages WHERE definition_id = $1`,
		definitionID).Scan(&rec.ID, &rec.DefinitionID, &rec.Path)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query skill package: %w", err)
	}
	return &rec, nil
}

// LoadPackage reads a skill package directory from disk. The root may contain
// SKILL.md, REFERENCE.md, and manifest.json; scripts/ and references/ are
// listed one level deep. Binary files are skipped.
func (s *SkillService) LoadPackage(skillID, dir string) (*models.SkillPackage, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, ErrNotFound
	}

	pkg := &models.SkillPackage{SkillID: skillID, Version: "current"}

	for _, name := range []string{"SKILL.md", "REFERENCE.md", "manifest.json"} {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if !utf8.Valid(content) {
			continue
		}
		pkg.Files = append(pkg.Files, models.SkillFile{
			Path:     name,
			Content:  string(content),
			Encoding: "utf-8",
		})
		if name == "SKILL.md" {
			pkg.FileInventory.HasSkillMD = true
		}
	}

	scripts, err := loadPackageDir(dir, "scripts")
	if err != nil {
		return nil, err
	}
	for _, f := range scripts {
		pkg.Files = append(pkg.Files, f)
		pkg.FileInventory.ScriptFiles = append(pkg.FileInventory.ScriptFiles, f.Path)
	}
	pkg.FileInventory.HasScripts = len(scripts) > 0

	references, err := loadPackageDir(dir, "references")
	if err != nil {
		return nil, err
	}
	for _, f := range references {
		pkg.Files = append(pkg.Files, f)
		pkg.FileInventory.ReferenceFiles = append(pkg.FileInventory.ReferenceFiles, f.Path)
	}
	pkg.FileInventory.HasReferences = len(references) > 0

	return pkg, nil
}

// loadPackageDir lists one subdirectory non-recursively, in name order,
// keeping at most maxPackageDirFiles UTF-8 files.
func loadPackageDir(root, sub string) ([]models.SkillFile, error) {
	entries, err := os.ReadDir(filepath.Join(root, sub))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s directory: %w", sub, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []models.SkillFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if len(files) >= maxPackageDirFiles {
			break
		}
		content, err := os.ReadFile(filepath.Join(root, sub, entry.Name()))
		if err != nil || !utf8.Valid(content) {
			continue
		}
		files = append(files, models.SkillFile{
			Path:     filepath.ToSlash(filepath.Join(sub, entry.Name())),
			Content:  string(content),
			Encoding: "utf-8",
		})
	}
	return files, nil
}
