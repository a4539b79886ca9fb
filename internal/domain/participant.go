package domain

import "time"

type Participant struct {
	ConnectionID   string
	UserID         string
	DisplayName    string
	DocumentID     string
	JoinedAt       time.Time
	LastActivityAt time.Time
	CursorPosition *int
	IsTyping       bool
}

// Clone копирует участника вместе с позицией курсора, чтобы снапшот не делил память с таблицей.
func (p Participant) Clone() Participant {
	if p.CursorPosition != nil {
		pos := *p.CursorPosition
		p.CursorPosition = &pos
	}
	return p
}
