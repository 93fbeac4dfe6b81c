package providers

import (
	_ "github.com/stake-plus/fitbet/src/ai/anthropic"
	_ "github.com/stake-plus/fitbet/src/ai/openrouter"
)
