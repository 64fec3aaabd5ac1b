package pricingtier

import (
	"github.com/smallbiznis/paygo/internal/pricingtier/repository"
	"github.com/smallbiznis/paygo/internal/pricingtier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricingtier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
