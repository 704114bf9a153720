package mountplan

// Directives is the user-facing description of the filesystem setup a
// sandboxed process wants, translated 1:1 from the CLI flag surface.
// Builder turns this into a deterministically ordered Plan; producing
// it involves no I/O.
type Directives struct {
	Base string

	Hostname    string
	HasHostname bool

	Binds      []BindDirective
	DevBinds   []BindDirective
	ROBinds    []BindDirective
	Overlays   []OverlayDirective
	BindFds    []BindFdDirective
	ROBindFds  []BindFdDirective
	RemountROs []string
	Procs      []string
	Devs       []string
	Tmpfs      []TmpfsDirective
	Mqueues    []string
	Dirs       []DirDirective
	Files      []FileDirective
	Symlinks   []SymlinkDirective
	Chmods     []ChmodDirective
}

type BindDirective struct {
	Src string
	Dst string
}

type OverlayDirective struct {
	Lower  []string
	Upper  string
	Work   string
	Target string
	Mode   OverlayMode
}

type BindFdDirective struct {
	Fd       int
	Dst      string
	ReadOnly bool
}

type TmpfsDirective struct {
	Target string
	SizeKb int
	Mode   uint32
}

type DirDirective struct {
	Path string
	Mode uint32
}

type FileDirective struct {
	Fd  int
	Dst string
}

type SymlinkDirective struct {
	Link   string
	Target string
}

type ChmodDirective struct {
	Path string
	Mode uint32
}

const defaultDirMode = 0o755
