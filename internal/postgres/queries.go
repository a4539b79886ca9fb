package postgres

const (
	queryDocumentByID = `
		SELECT id, title, content, last_modified
		FROM documents
		WHERE id = $1`

	// FOR UPDATE: конкурентные коммиты по одному документу выстраиваются в очередь,
	// последний закоммиченный и есть итоговое содержимое.
	queryDocumentByIDForUpdate = queryDocumentByID + `
		FOR UPDATE`

	queryUpdateDocumentContent = `
		UPDATE documents
		SET content = $2, last_modified = $3
		WHERE id = $1
		RETURNING id, title, content, last_modified`
)
