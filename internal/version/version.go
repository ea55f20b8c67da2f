// Package version хранит сведения о сборке, заполняемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/vegshop/internal/version.version=v1.2.0"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хеш коммита.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// Fields возвращает сведения о сборке для логов и health-ответов.
func Fields() map[string]string {
	return map[string]string{"version": version, "commit": commit, "build_date": date}
}

func String() string {
	return fmt.Sprintf("vegshop %s (commit=%s, built=%s)", version, commit, date)
}
