// Package autoload initializes the global logger from LOG_* environment
// variables on import. Blank-import it from main:
//
//	_ "github.com/worameth/clinicdesk/pkg/logger/autoload"
package autoload

import (
	configx "github.com/worameth/clinicdesk/pkg/config"
	logx "github.com/worameth/clinicdesk/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
