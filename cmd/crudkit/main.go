// Command crudkit serves the contact and subscription resources over the
// configured document store.
package main

import (
	"github.com/nimburion/crudkit/pkg/app"
	"github.com/nimburion/crudkit/pkg/cli"
)

func main() {
	cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:              "crudkit",
		Description:       "Paginated CRUD API over Firestore, MongoDB, PostgreSQL or memory",
		EnvPrefix:         "CRUDKIT",
		RunServer:         app.Run,
		CheckDependencies: app.CheckDependencies,
	}))
}
