package fx

import (
	"github.com/orgball2608/content-publisher/internal/repositories/account"
	"github.com/orgball2608/content-publisher/internal/repositories/analytics"
	"github.com/orgball2608/content-publisher/internal/repositories/content"
	"go.uber.org/fx"
)

var Module = fx.Options(
	content.Module,
	account.Module,
	analytics.Module,
)
