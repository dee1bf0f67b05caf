package postgres

const (
	queryInsertMessage = `
		INSERT INTO chat_messages (id, sender_id, receiver_id, body, file_url, file_name, file_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sent_at`

	// newest first; the repository reverses the page
	queryConversation = `
		SELECT id::text, sender_id, receiver_id, body, file_url, file_name, file_type, sent_at
		FROM chat_messages
		WHERE LEAST(sender_id, receiver_id) = LEAST($1, $2)
		  AND GREATEST(sender_id, receiver_id) = GREATEST($1, $2)
		  AND (
		    $3::timestamptz IS NULL
		    OR sent_at < $3
		    OR (sent_at = $3 AND id < $4::uuid)
		  )
		ORDER BY sent_at DESC, id DESC
		LIMIT $5`

	queryConversations = `
		SELECT DISTINCT ON (peer)
		       peer, id::text, sender_id, receiver_id, body, file_url, file_name, file_type, sent_at, cnt
		FROM (
		    SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer,
		           m.id, m.sender_id, m.receiver_id, m.body, m.file_url, m.file_name, m.file_type, m.sent_at,
		           COUNT(*) OVER (PARTITION BY CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END) AS cnt
		    FROM chat_messages m
		    WHERE m.sender_id = $1 OR m.receiver_id = $1
		) t
		ORDER BY peer, sent_at DESC, id DESC`

	queryGetUser = `
		SELECT id::text, COALESCE(display_name, ''), COALESCE(role, '')
		FROM users
		WHERE id::text = $1`

	queryUpsertToken = `
		INSERT INTO device_tokens (user_id, app_variant, token, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, app_variant)
		DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`

	queryGetToken = `
		SELECT token, updated_at
		FROM device_tokens
		WHERE user_id = $1 AND app_variant = $2`

	queryDeleteToken = `
		DELETE FROM device_tokens
		WHERE user_id = $1 AND app_variant = $2 AND token = $3`
)
