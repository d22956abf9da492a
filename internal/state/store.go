package state

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	stateFilePathRequiredMessageConstant = "state file path must be provided"
	stateFileReadErrorTemplateConstant   = "unable to read state file %s: %w"
	stateFileParseErrorTemplateConstant  = "unable to parse state file %s: %w"
	stateFileEncodeErrorTemplateConstant = "unable to encode state records: %w"
	stateFileWriteErrorTemplateConstant  = "unable to write state file %s: %w"
	stateFilePermissionsConstant         = 0o644
)

// Status enumerates the migration states a repository record can hold.
type Status string

// Repository migration statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSkipped    Status = "skipped"
	StatusMigrated   Status = "migrated"
	StatusFailed     Status = "failed"
)

// Record captures the migration status of a single repository.
type Record struct {
	RepositoryURL  string    `yaml:"repository_url"`
	RepositoryPath string    `yaml:"repository_path"`
	Status         Status    `yaml:"status"`
	LastUpdate     time.Time `yaml:"last_update"`
}

// Clock supplies timestamps for record updates.
type Clock func() time.Time

// Store maintains an ordered list of migration records backed by a YAML file.
//
// Every Flush rewrites the file in full; records keep their insertion order
// and are keyed by repository URL.
type Store struct {
	stateFilePath string
	clock         Clock
	records       []Record
	recordIndexes map[string]int
}

var errStateFilePathRequired = errors.New(stateFilePathRequiredMessageConstant)

// NewStore constructs a Store persisting to the provided file path.
func NewStore(stateFilePath string, clock Clock) (*Store, error) {
	if len(stateFilePath) == 0 {
		return nil, errStateFilePathRequired
	}

	resolvedClock := clock
	if resolvedClock == nil {
		resolvedClock = time.Now
	}

	return &Store{
		stateFilePath: stateFilePath,
		clock:         resolvedClock,
		recordIndexes: map[string]int{},
	}, nil
}

// Load reads previously persisted records from the state file.
//
// A missing file yields an empty record list so first runs need no setup.
func (store *Store) Load() ([]Record, error) {
	fileContent, readError := os.ReadFile(store.stateFilePath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf(stateFileReadErrorTemplateConstant, store.stateFilePath, readError)
	}

	var loadedRecords []Record
	if parseError := yaml.Unmarshal(fileContent, &loadedRecords); parseError != nil {
		return nil, fmt.Errorf(stateFileParseErrorTemplateConstant, store.stateFilePath, parseError)
	}

	store.records = loadedRecords
	store.recordIndexes = make(map[string]int, len(loadedRecords))
	for recordIndex := range loadedRecords {
		store.recordIndexes[loadedRecords[recordIndex].RepositoryURL] = recordIndex
	}

	return store.Records(), nil
}

// Upsert inserts or replaces the record keyed by its repository URL, stamping the update time.
func (store *Store) Upsert(record Record) {
	record.LastUpdate = store.clock()

	if existingIndex, recordExists := store.recordIndexes[record.RepositoryURL]; recordExists {
		store.records[existingIndex] = record
		return
	}

	store.recordIndexes[record.RepositoryURL] = len(store.records)
	store.records = append(store.records, record)
}

// Flush rewrites the state file with the current record list.
func (store *Store) Flush() error {
	encodedRecords, encodingError := yaml.Marshal(store.records)
	if encodingError != nil {
		return fmt.Errorf(stateFileEncodeErrorTemplateConstant, encodingError)
	}

	if writeError := os.WriteFile(store.stateFilePath, encodedRecords, stateFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(stateFileWriteErrorTemplateConstant, store.stateFilePath, writeError)
	}

	return nil
}

// Records returns a copy of the current record list in insertion order.
func (store *Store) Records() []Record {
	duplicatedRecords := make([]Record, len(store.records))
	copy(duplicatedRecords, store.records)
	return duplicatedRecords
}
