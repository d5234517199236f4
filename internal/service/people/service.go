package people

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/person"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
)

const (
	directoryPageSize = 1000
	directoryMaxPages = 1000
	localPageSize     = 1000
)

// Platform pages through the remote people directory.
type Platform interface {
	ListPersons(ctx context.Context, page, limit int, filter map[string]string) ([]messaging.Person, error)
}

// PersonStore persists the local people mirror.
type PersonStore interface {
	List(ctx context.Context, limit, offset int) ([]*person.Person, error)
	InsertBatch(ctx context.Context, people []*person.Person) (int, error)
	UpdateSyncedFields(ctx context.Context, id int64, partyID *int64, phone string, messagingID *string) error
}

// directoryEntry is the slice of a remote person the sync cares about.
type directoryEntry struct {
	PartyNumber int64
	PartyID     *int64
	Phone       string
	MessagingID string
}

// SyncResult summarizes one bulk reconciliation pass.
type SyncResult struct {
	TotalRemote    int     `json:"total_remote"`
	TotalLocal     int     `json:"total_local"`
	Updated        int     `json:"updated"`
	Unchanged      int     `json:"unchanged"`
	Inserted       int     `json:"inserted"`
	SkippedNoPhone int     `json:"skipped_no_phone"`
	MissingRemote  int     `json:"missing_remote"`
	Failed         int     `json:"failed"`
	DurationSec    float64 `json:"duration_seconds"`
}

// ImportResult summarizes a CSV bulk load.
type ImportResult struct {
	TotalRows     int `json:"total_rows"`
	Duplicates    int `json:"duplicates_removed"`
	MissingFields int `json:"rows_without_required_fields"`
	Inserted      int `json:"inserted"`
}

type Service struct {
	platform Platform
	store    PersonStore
	logger   *zap.Logger
}

func NewService(platform Platform, store PersonStore, logger *zap.Logger) *Service {
	return &Service{platform: platform, store: store, logger: logger}
}

// Sync reconciles the local people mirror against the platform
// directory, which is the source of truth. Rows are matched by
// party_number; party id, phone and messaging id are overwritten when
// any of them differs. Directory entries unknown locally are inserted
// only when they carry a phone.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	remote, err := s.fetchDirectory(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "listing platform people")
	}
	local, err := s.fetchLocal(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "listing local people")
	}

	remoteByParty := make(map[int64]directoryEntry, len(remote))
	for _, e := range remote {
		remoteByParty[e.PartyNumber] = e
	}

	res := &SyncResult{TotalRemote: len(remote), TotalLocal: len(local)}
	localParties := make(map[int64]struct{}, len(local))

	for _, p := range local {
		if p.PartyNumber == nil {
			continue
		}
		localParties[*p.PartyNumber] = struct{}{}

		entry, ok := remoteByParty[*p.PartyNumber]
		if !ok {
			res.MissingRemote++
			continue
		}
		if !entryDiffers(p, entry) {
			res.Unchanged++
			continue
		}
		msgID := strPtrOrNil(entry.MessagingID)
		if err := s.store.UpdateSyncedFields(ctx, p.ID, entry.PartyID, entry.Phone, msgID); err != nil {
			s.logger.Warn("person sync update failed", zap.Int64("person_id", p.ID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Updated++
	}

	var inserts []*person.Person
	for partyNumber, entry := range remoteByParty {
		if _, ok := localParties[partyNumber]; ok {
			continue
		}
		if entry.Phone == "" {
			res.SkippedNoPhone++
			continue
		}
		pn := partyNumber
		inserts = append(inserts, &person.Person{
			PartyID:     entry.PartyID,
			PartyNumber: &pn,
			Phone:       entry.Phone,
			MessagingID: strPtrOrNil(entry.MessagingID),
		})
	}
	if len(inserts) > 0 {
		inserted, err := s.store.InsertBatch(ctx, inserts)
		if err != nil {
			s.logger.Warn("person sync insert failed", zap.Int("count", len(inserts)), zap.Error(err))
			res.Failed += len(inserts)
		} else {
			res.Inserted = inserted
		}
	}

	res.DurationSec = time.Since(start).Seconds()
	return res, nil
}

// ImportCSV bulk loads people from a CSV export. Rows are de-duplicated
// by (party_id, party_number) before insertion; rows missing any of the
// three columns are counted and skipped.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "reading csv header")
	}
	idCol, numberCol, phoneCol := headerColumns(header)
	if idCol < 0 || numberCol < 0 || phoneCol < 0 {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "csv is missing party_id, party_number or phone columns")
	}

	type partyKey struct{ id, number int64 }
	seen := make(map[partyKey]struct{})
	res := &ImportResult{}
	var batch []*person.Person

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("reading csv row: %v", err))
		}
		res.TotalRows++

		partyID, err1 := columnInt64(row, idCol)
		partyNumber, err2 := columnInt64(row, numberCol)
		phone := columnString(row, phoneCol)
		if err1 != nil || err2 != nil || phone == "" {
			res.MissingFields++
			continue
		}

		key := partyKey{id: partyID, number: partyNumber}
		if _, ok := seen[key]; ok {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		id, number := partyID, partyNumber
		batch = append(batch, &person.Person{
			PartyID:     &id,
			PartyNumber: &number,
			Phone:       phone,
		})
	}

	if len(batch) > 0 {
		inserted, err := s.store.InsertBatch(ctx, batch)
		if err != nil {
			return nil, xerrors.Wrap(err, "inserting csv people")
		}
		res.Inserted = inserted
	}
	return res, nil
}

func (s *Service) fetchDirectory(ctx context.Context) ([]directoryEntry, error) {
	var entries []directoryEntry
	for page := 1; page <= directoryMaxPages; page++ {
		persons, err := s.platform.ListPersons(ctx, page, directoryPageSize, nil)
		if err != nil {
			return nil, err
		}
		if len(persons) == 0 {
			break
		}
		for i := range persons {
			p := &persons[i]
			partyNumber := p.CustomInt64("party_number")
			if partyNumber == nil {
				partyNumber = p.CustomInt64("Party_number")
			}
			if partyNumber == nil {
				continue
			}
			partyID := p.CustomInt64("party_id")
			if partyID == nil {
				partyID = p.CustomInt64("Party_id")
			}
			entries = append(entries, directoryEntry{
				PartyNumber: *partyNumber,
				PartyID:     partyID,
				Phone:       p.PrimaryPhone(),
				MessagingID: p.ID,
			})
		}
		if len(persons) < directoryPageSize {
			break
		}
	}
	return entries, nil
}

func (s *Service) fetchLocal(ctx context.Context) ([]*person.Person, error) {
	var all []*person.Person
	for offset := 0; ; offset += localPageSize {
		page, err := s.store.List(ctx, localPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < localPageSize {
			break
		}
	}
	return all, nil
}

func entryDiffers(p *person.Person, e directoryEntry) bool {
	if !int64PtrEqual(p.PartyID, e.PartyID) {
		return true
	}
	if p.Phone != e.Phone {
		return true
	}
	local := ""
	if p.MessagingID != nil {
		local = *p.MessagingID
	}
	return local != e.MessagingID
}

// headerColumns locates the three required columns, tolerating both the
// plain names and the prefixed names the CRM export uses.
func headerColumns(header []string) (idCol, numberCol, phoneCol int) {
	idCol, numberCol, phoneCol = -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "party_id", "cliente.party_id":
			idCol = i
		case "party_number", "cliente.party_number":
			numberCol = i
		case "phone", "telefono", "telefono-limpio":
			phoneCol = i
		}
	}
	return idCol, numberCol, phoneCol
}

func columnInt64(row []string, col int) (int64, error) {
	return strconv.ParseInt(columnString(row, col), 10, 64)
}

func columnString(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
