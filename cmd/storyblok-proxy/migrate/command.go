package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/storyblok-proxy/internal/business"
	"github.com/openkcm/storyblok-proxy/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Storyblok proxy migrations",
		"Applies the PostgreSQL session store migrations.",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
