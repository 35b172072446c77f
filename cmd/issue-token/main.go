// issue-token prints a signed JWT for local development. Production tokens are issued by the identity service.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/huminex/payroll_backend/utils"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	userID := flag.String("user-id", "", "Required: user id")
	email := flag.String("email", "", "user email")
	role := flag.String("role", "", "role claim, e.g. admin")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" || strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id and --user-id are required")
		os.Exit(1)
	}
	token, err := utils.JwtGenerate(*tenantID, *userID, *email, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
