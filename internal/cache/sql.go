package cache

import (
	_ "embed"
)

const (
	upsertReadingSQL = `
INSERT INTO measurement_cache (pass_type,
                               frequency_hz,
                               power_dbm,
                               captured_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (pass_type, frequency_hz) DO UPDATE SET power_dbm   = excluded.power_dbm,
                                                    captured_at = excluded.captured_at`

	selectReadingsSQL = `
SELECT pass_type,
       frequency_hz,
       power_dbm,
       captured_at
FROM measurement_cache
WHERE pass_type = ?
ORDER BY frequency_hz`

	deletePassSQL = `
DELETE
FROM measurement_cache
WHERE pass_type = ?`

	deleteAllSQL = `
DELETE
FROM measurement_cache`
)

//go:embed schema.sql
var initSchemaSQL string
