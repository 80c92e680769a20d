// Command issue-token signs a development identity token for the live API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/service"
)

func main() {
	cfg := config.Load()

	id := pflag.Int("id", 0, "user id (required)")
	name := pflag.String("name", "", "display name")
	role := pflag.String("role", string(model.RoleStudent), "role: student, teacher, admin or parent")
	grade := pflag.Int("grade", 0, "grade level 1-12 (students only)")
	secret := pflag.String("secret", cfg.JWTSecret, "HS256 signing secret (defaults to JWT_SECRET)")
	expiry := pflag.Duration("expiry", cfg.JWTExpiry, "token lifetime")
	pflag.Parse()

	identity := model.Identity{ID: *id, Name: *name, Role: model.Role(*role)}
	if *grade != 0 {
		if *grade < 1 || *grade > 12 {
			fail("grade must be between 1 and 12")
		}
		g := *grade
		identity.Grade = &g
	}
	if identity.Role == model.RoleStudent && identity.Grade == nil {
		fmt.Fprintln(os.Stderr, color.YellowString("warning: student token without --grade cannot open exams"))
	}

	token, err := service.NewAuthService(*secret, *expiry).GenerateToken(identity)
	if err != nil {
		fail(err.Error())
	}

	fmt.Fprintf(os.Stderr, "%s %s (id=%d, role=%s) expires %s\n",
		color.GreenString("issued"),
		color.CyanString(identity.Name),
		identity.ID,
		identity.Role,
		time.Now().Add(*expiry).Format(time.RFC3339),
	)
	fmt.Println(token)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, color.RedString("error: %s", msg))
	pflag.Usage()
	os.Exit(2)
}
