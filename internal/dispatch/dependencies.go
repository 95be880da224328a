package dispatch

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Dependencies are the external clients handlers need. Any field may be
// nil; handlers that need one fail with domain.NodeErrOther rather
// than panicking when it is unset (e.g. no OPENAI_API_KEY configured).
type Dependencies struct {
	LLM   *openai.Client
	SQL   *sql.DB
	Redis *redis.Client
	Log   zerolog.Logger
}
