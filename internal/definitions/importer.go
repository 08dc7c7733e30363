package definitions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// Catalog is the index.yaml at the root of one definitions directory. Only
// files it references are imported.
type Catalog struct {
	Collection  string          `yaml:"collection"`
	Description string          `yaml:"description"`
	Definitions []DefinitionRef `yaml:"definitions"`
}

type DefinitionRef struct {
	File string `yaml:"file"`
	Name string `yaml:"name"`
}

// document is the on-disk JSON shape. Rooms are referenced by name so seed
// files stay portable across databases.
type document struct {
	Code         string              `json:"code"`
	Description  string              `json:"description"`
	Type         string              `json:"type"`
	Source       types.SourceKind    `json:"data_source_type"`
	Modbus       *types.ModbusParams `json:"modbus,omitempty"`
	MQTT         *types.MQTTParams   `json:"mqtt,omitempty"`
	LowerLimit   *float64            `json:"lower_limit,omitempty"`
	UpperLimit   *float64            `json:"upper_limit,omitempty"`
	Enabled      *bool               `json:"enabled,omitempty"`
	Room         string              `json:"room,omitempty"`
	PollInterval *int                `json:"poll_interval,omitempty"`
}

type Gateway interface {
	UpsertCode(ctx context.Context, code *types.DiagnosticCode) (uuid.UUID, error)
	LoadRooms(ctx context.Context) ([]types.Room, error)
}

// Importer seeds diagnostic code definitions from disk into the database at
// startup. Re-running is safe: codes are matched by their unique code string
// and runtime state is never touched.
type Importer struct {
	gateway     Gateway
	validator   *Validator
	logger      *zap.Logger
	searchPaths []string
}

func NewImporter(searchPaths []string, gateway Gateway, logger *zap.Logger) (*Importer, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Importer{
		gateway:     gateway,
		validator:   validator,
		logger:      logger,
		searchPaths: searchPaths,
	}, nil
}

// Run imports every cataloged definition and returns the number of codes
// upserted. A single invalid definition aborts the import.
func (i *Importer) Run(ctx context.Context) (int, error) {
	if len(i.searchPaths) == 0 {
		return 0, nil
	}

	rooms, err := i.gateway.LoadRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load rooms: %w", err)
	}
	roomsByName := make(map[string]uuid.UUID, len(rooms))
	for _, r := range rooms {
		roomsByName[r.Name] = r.ID
	}

	imported := 0

	for _, searchPath := range i.searchPaths {
		indexPath := filepath.Join(searchPath, "index.yaml")

		data, err := os.ReadFile(indexPath)
		if os.IsNotExist(err) {
			i.logger.Warn("Definitions index not found", zap.String("path", indexPath))
			continue
		}
		if err != nil {
			return imported, fmt.Errorf("failed to read %s: %w", indexPath, err)
		}

		var catalog Catalog
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return imported, fmt.Errorf("failed to parse %s: %w", indexPath, err)
		}

		for _, ref := range catalog.Definitions {
			code, err := i.loadDefinition(filepath.Join(searchPath, ref.File), roomsByName)
			if err != nil {
				return imported, err
			}

			if _, err := i.gateway.UpsertCode(ctx, code); err != nil {
				return imported, err
			}

			i.logger.Info("Imported diagnostic code definition",
				zap.String("code", code.Code),
				zap.String("source", string(code.Source)),
				zap.String("file", ref.File))
			imported++
		}
	}

	return imported, nil
}

func (i *Importer) loadDefinition(path string, roomsByName map[string]uuid.UUID) (*types.DiagnosticCode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	if err := i.validator.ValidateDefinition(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition %s: %w", path, err)
	}

	code := &types.DiagnosticCode{
		Code:         doc.Code,
		Description:  doc.Description,
		Type:         doc.Type,
		Source:       doc.Source,
		Modbus:       doc.Modbus,
		MQTT:         doc.MQTT,
		LowerLimit:   doc.LowerLimit,
		UpperLimit:   doc.UpperLimit,
		Enabled:      true,
		PollInterval: doc.PollInterval,
	}
	if doc.Enabled != nil {
		code.Enabled = *doc.Enabled
	}
	if code.Modbus != nil && code.Modbus.Scaling == 0 {
		code.Modbus.Scaling = 1
	}

	if doc.Room != "" {
		roomID, ok := roomsByName[doc.Room]
		if !ok {
			return nil, fmt.Errorf("definition %s references unknown room %q", path, doc.Room)
		}
		code.RoomID = &roomID
	}

	if err := code.Validate(); err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}

	return code, nil
}
