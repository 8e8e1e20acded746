package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/storyblok-proxy/internal/business"
	"github.com/openkcm/storyblok-proxy/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Storyblok proxy API server",
		"Storyblok proxy API server runs the OAuth authorization code flow against Storyblok "+
			"and forwards the browser's requests to the management API with the session's access token.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
