// Command konnect はアカウント登録・ログイン・フォローを提供するAPIサーバーとワーカーを起動する。
//
// 使い方:
//
//	konnect [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/konnect/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
