package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nodetrace/models"
)

const contactColumns = `
			contact_id,
			display_name,
			encounter_started_at,
			duration_ms,
			average_rssi,
			latitude,
			longitude,
			health_status`

// InsertContact stores a newly finalized contact.
func (s *Store) InsertContact(contact models.Contact) error {
	if strings.TrimSpace(contact.ID) == "" {
		return errors.New("contact_id is required")
	}
	if contact.DurationMS < 0 {
		return errors.New("duration_ms must be >= 0")
	}
	if contact.HealthStatus == "" {
		contact.HealthStatus = models.HealthStatusUnknown
	}
	if err := validateHealthStatus(contact.HealthStatus); err != nil {
		return err
	}
	if contact.EncounterStartedAt == 0 {
		contact.EncounterStartedAt = nowUnixMilli()
	}

	var latitude, longitude *float64
	if contact.Location != nil {
		latitude = &contact.Location.Latitude
		longitude = &contact.Location.Longitude
	}

	_, err := s.db.Exec(
		`INSERT INTO contacts (`+contactColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID,
		contact.DisplayName,
		contact.EncounterStartedAt,
		contact.DurationMS,
		contact.AverageRSSI,
		nullFloat64(latitude),
		nullFloat64(longitude),
		string(contact.HealthStatus),
	)
	if err != nil {
		return fmt.Errorf("insert contact %q: %w", contact.ID, err)
	}

	return nil
}

// GetContact fetches a contact by id.
func (s *Store) GetContact(contactID string) (*models.Contact, error) {
	row := s.db.QueryRow(
		`SELECT`+contactColumns+`
		FROM contacts
		WHERE contact_id = ?`,
		contactID,
	)

	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contact %q: %w", contactID, err)
	}

	return contact, nil
}

// ListContacts returns all contacts, newest encounter first.
func (s *Store) ListContacts() ([]models.Contact, error) {
	return s.queryContacts(
		`SELECT`+contactColumns+`
		FROM contacts
		ORDER BY encounter_started_at DESC, contact_id`,
	)
}

// ListContactsSince returns contacts that started at or after sinceTimestamp.
func (s *Store) ListContactsSince(sinceTimestamp int64) ([]models.Contact, error) {
	return s.queryContacts(
		`SELECT`+contactColumns+`
		FROM contacts
		WHERE encounter_started_at >= ?
		ORDER BY encounter_started_at DESC, contact_id`,
		sinceTimestamp,
	)
}

// UpdateHealthStatus sets the health status of one contact.
func (s *Store) UpdateHealthStatus(contactID string, status models.HealthStatus) error {
	if err := validateHealthStatus(status); err != nil {
		return err
	}

	res, err := s.db.Exec(
		`UPDATE contacts SET health_status = ? WHERE contact_id = ?`,
		string(status),
		contactID,
	)
	if err != nil {
		return fmt.Errorf("update health status for contact %q: %w", contactID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for contact %q: %w", contactID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// PruneContactsBefore removes contacts that started before cutoffTimestamp.
func (s *Store) PruneContactsBefore(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM contacts WHERE encounter_started_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune contacts: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for contact prune: %w", err)
	}

	return rowsAffected, nil
}

func (s *Store) queryContacts(query string, args ...any) ([]models.Contact, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, *contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}

	return contacts, nil
}

func scanContact(row scanner) (*models.Contact, error) {
	var (
		contact   models.Contact
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		status    string
	)
	if err := row.Scan(
		&contact.ID,
		&contact.DisplayName,
		&contact.EncounterStartedAt,
		&contact.DurationMS,
		&contact.AverageRSSI,
		&latitude,
		&longitude,
		&status,
	); err != nil {
		return nil, err
	}

	contact.HealthStatus = models.HealthStatus(status)
	if latitude.Valid && longitude.Valid {
		contact.Location = &models.Location{
			Latitude:  latitude.Float64,
			Longitude: longitude.Float64,
		}
	}
	return &contact, nil
}
