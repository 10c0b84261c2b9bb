package domain

import "time"

// Bot is a user-submitted program identified by a unique name, backed
// by source code in one of the configured languages. Immutable except
// for Name (via RenameBot).
type Bot struct {
	Id        BotId
	Name      BotName
	Source    SourceCode
	Language  Language
	CreatedAt time.Time
}

func NewBot(name BotName, source SourceCode, language Language, createdAt time.Time) Bot {
	return Bot{
		Id:        UninitializedBotId,
		Name:      name,
		Source:    source,
		Language:  language,
		CreatedAt: createdAt,
	}
}
