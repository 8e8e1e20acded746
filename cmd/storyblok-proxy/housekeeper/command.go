package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/storyblok-proxy/internal/business"
	"github.com/openkcm/storyblok-proxy/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Storyblok proxy housekeeping job",
		"Storyblok proxy housekeeping job deletes expired server-side sessions.",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
