// internal/version/version.go
package version

// AppName is the display name of the bot.
const AppName = "Basslink"

// AppVersion is set at build time via -ldflags.
var AppVersion = "dev"

// ClientName is the value sent in the Client-Name header to Lavalink nodes.
func ClientName() string {
	return AppName + "/" + AppVersion
}
