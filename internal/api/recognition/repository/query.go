package recognitionRepository

const (
	queryCreateRecognitionsTable = `
		CREATE TABLE IF NOT EXISTS recognitions (
			id          VARCHAR(26) PRIMARY KEY,
			request_id  VARCHAR(64) NOT NULL, -- middleware.maxRequestIDLength
			image_hash  CHAR(64)    NOT NULL,
			text        TEXT        NOT NULL,
			source      VARCHAR(16) NOT NULL,
			timesteps   INTEGER     NOT NULL,
			cached      BOOLEAN     NOT NULL DEFAULT FALSE,
			latency_ms  BIGINT      NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		)
	`

	queryCreateRecognition = `
		INSERT INTO recognitions (
			id,
			request_id,
			image_hash,
			text,
			source,
			timesteps,
			cached,
			latency_ms,
			created_at
		) VALUES (
			:id,
			:request_id,
			:image_hash,
			:text,
			:source,
			:timesteps,
			:cached,
			:latency_ms,
			:created_at
		)
	`

	queryCountRecognitions = `
		SELECT COUNT(*) FROM recognitions
	`

	queryGetRecentRecognitions = `
		SELECT
			id,
			request_id,
			image_hash,
			text,
			source,
			timesteps,
			cached,
			latency_ms,
			created_at
		FROM recognitions
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`
)
