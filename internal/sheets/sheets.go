package sheets

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"bakelite_bot/internal/models"
)

const (
	dataRange  = "A:H"
	timeLayout = "2006-01-02 15:04:05"
)

// Column order of the applicants sheet. The first row holds headers.
var headers = []interface{}{
	"User ID", "Username", "Region", "Nick", "Skills", "Details", "Registered At", "Status",
}

// Service is an applicant store backed by a Google spreadsheet.
type Service struct {
	service       *sheets.Service
	spreadsheetID string
	now           func() time.Time
}

func NewService(ctx context.Context, credentialsPath, spreadsheetID string) (*Service, error) {
	service, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create sheets service")
	}

	return &Service{
		service:       service,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
	}, nil
}

// SetupHeaders writes the header row.
func (s *Service) SetupHeaders(ctx context.Context) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headers},
	}

	_, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		"A1:H1",
		valueRange,
	).ValueInputOption("RAW").Context(ctx).Do()

	return errors.Wrap(err, "unable to write headers")
}

func (s *Service) Upsert(ctx context.Context, userID int64, fields models.ApplicantFields) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}

	rec := &models.ApplicantRecord{UserID: userID, RegisteredAt: s.now()}
	idx := findRow(rows, userID)
	if idx >= 0 {
		if existing := parseRow(rows[idx]); existing != nil {
			rec.RegisteredAt = existing.RegisteredAt
		}
	}
	rec.Apply(fields)

	valueRange := &sheets.ValueRange{Values: [][]interface{}{formatRow(rec)}}
	if idx < 0 {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			dataRange,
			valueRange,
		).ValueInputOption("RAW").Context(ctx).Do()
		return errors.Wrapf(err, "unable to add applicant %d", userID)
	}

	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("A%d:H%d", idx+1, idx+1),
		valueRange,
	).ValueInputOption("RAW").Context(ctx).Do()
	return errors.Wrapf(err, "unable to update applicant %d", userID)
}

func (s *Service) FindByKey(ctx context.Context, userID int64) (*models.ApplicantRecord, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, userID)
	if idx < 0 {
		return nil, nil
	}
	return parseRow(rows[idx]), nil
}

func (s *Service) FindByStatus(ctx context.Context, status models.Status) ([]*models.ApplicantRecord, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.ApplicantRecord
	for _, rec := range all {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*models.ApplicantRecord, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	return parseRows(rows), nil
}

// SetStatus rewrites column H of the applicant's row.
func (s *Service) SetStatus(ctx context.Context, userID int64, status models.Status) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}
	idx := findRow(rows, userID)
	if idx < 0 {
		return nil
	}

	statusValue := &sheets.ValueRange{
		Values: [][]interface{}{{string(status)}},
	}
	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("H%d", idx+1),
		statusValue,
	).ValueInputOption("RAW").Context(ctx).Do()
	return errors.Wrapf(err, "unable to update status of applicant %d", userID)
}

func (s *Service) rows(ctx context.Context) ([][]interface{}, error) {
	resp, err := s.service.Spreadsheets.Values.Get(
		s.spreadsheetID,
		dataRange,
	).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read applicants")
	}
	return resp.Values, nil
}

// findRow returns the index of the row holding userID, skipping the header.
func findRow(rows [][]interface{}, userID int64) int {
	key := strconv.FormatInt(userID, 10)
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if cell(row, 0) == key {
			return i
		}
	}
	return -1
}

func parseRows(rows [][]interface{}) []*models.ApplicantRecord {
	var out []*models.ApplicantRecord
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if rec := parseRow(row); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// parseRow returns nil for rows without a numeric user id.
func parseRow(row []interface{}) *models.ApplicantRecord {
	id, err := strconv.ParseInt(cell(row, 0), 10, 64)
	if err != nil {
		return nil
	}
	rec := &models.ApplicantRecord{
		UserID:   id,
		Username: cell(row, 1),
		Region:   cell(row, 2),
		Nick:     cell(row, 3),
		Skills:   cell(row, 4),
		Details:  cell(row, 5),
		Status:   models.Status(cell(row, 7)),
	}
	rec.RegisteredAt, _ = time.Parse(timeLayout, cell(row, 6))
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	return rec
}

func formatRow(rec *models.ApplicantRecord) []interface{} {
	return []interface{}{
		strconv.FormatInt(rec.UserID, 10),
		rec.Username,
		rec.Region,
		rec.Nick,
		rec.Skills,
		rec.Details,
		rec.RegisteredAt.UTC().Format(timeLayout),
		string(rec.Status),
	}
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprintf("%v", row[i])
}
