package timetagger

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	"golang.org/x/exp/slices"
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type ClockEntry struct {
	Channel   int     `db:"Channel"`
	FabricMHz float64 `db:"FabricMHz"`
}

// LoadClockTable reads the fabric clock of every readout channel valid for
// runNumber.
func LoadClockTable(db *sqlx.DB, runNumber int) (ClockTable, error) {
	query := "SELECT Channel, FabricMHz FROM ReadoutChannels WHERE MinRun <= ? and MaxRun >= ? ORDER BY Channel"

	if configuration.Verbosity > 0 {
		logger.Info("Reading clock calibration from database", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s (run %d)", query, runNumber)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	table := make(ClockTable)
	for rows.Next() {
		result := ClockEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		if result.FabricMHz <= 0 {
			return nil, &ConfigError{Field: "fabric clock", Value: result.FabricMHz,
				Reason: fmt.Sprintf("channel %d must have a positive frequency", result.Channel)}
		}
		table[result.Channel] = result.FabricMHz
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading DB rows: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("no clock calibration found for run %d", runNumber)
	}

	if configuration.Verbosity > 1 {
		channels := make([]int, 0, len(table))
		for ch := range table {
			channels = append(channels, ch)
		}
		slices.Sort(channels)
		for _, ch := range channels {
			message := fmt.Sprintf("Channel %d: fabric clock %.3f MHz", ch, table[ch])
			logger.Info(message, "database")
		}
	}
	return table, nil
}
