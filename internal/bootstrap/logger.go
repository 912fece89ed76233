package bootstrap

import (
	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/config"
)

func BuildLogger(cfg config.Config) (*logrus.Logger, error) {
	return buildLogger(cfg)
}
