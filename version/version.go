package version

var (
	Version = "0.9"
	GitHash = "unknown" // replaced at build time
	BuildTS = "unknown" // replaced at build time
	Model   = "BitmineA1"
)

func String() string {
	return Model + "/" + Version + " (" + GitHash + ", " + BuildTS + ")"
}
