package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/api/clients"
	"github.com/ruteri/certificate-registry/cmd/flags"
	"github.com/ruteri/certificate-registry/interfaces"
)

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 60 * time.Second,
	Usage: "request timeout",
}

var (
	flagName               = &cli.StringFlag{Name: "name", Required: true, Usage: "university name"}
	flagRegistrationNumber = &cli.StringFlag{Name: "registration-number", Required: true, Usage: "university registration number"}
	flagStudent            = &cli.StringFlag{Name: "student", Required: true, Usage: "student address"}
	flagStudentName        = &cli.StringFlag{Name: "student-name", Required: true, Usage: "student full name"}
	flagCourse             = &cli.StringFlag{Name: "course", Required: true, Usage: "course name"}
	flagGrade              = &cli.StringFlag{Name: "grade", Required: true, Usage: "grade awarded"}
	flagCompletionDate     = &cli.StringFlag{Name: "completion-date", Required: true, Usage: "unix seconds, RFC3339 or YYYY-MM-DD"}
	flagTemplate           = &cli.PathFlag{Name: "template", Usage: "PDF file stored instead of the generated certificate"}
	flagOutput             = &cli.PathFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to file instead of stdout"}
)

func main() {
	app := &cli.App{
		Name:  "registry_client",
		Usage: "Administer a certificate registry over its HTTP API",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Show server health and configured secrets",
				Action: run(func(c *Client, cCtx *cli.Context) error { return c.Health(cCtx.Context) }),
			},
			{
				Name:  "register",
				Usage: "Register the server's signer as a university",
				Flags: []cli.Flag{flagName, flagRegistrationNumber},
				Action: run(func(c *Client, cCtx *cli.Context) error {
					return c.RegisterUniversity(cCtx.Context, cCtx.String(flagName.Name), cCtx.String(flagRegistrationNumber.Name))
				}),
			},
			{
				Name:      "verify",
				Usage:     "Verify a registered university (ledger owner only)",
				ArgsUsage: "<university address>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					addr, err := addressArg(cCtx)
					if err != nil {
						return err
					}
					return c.VerifyUniversity(cCtx.Context, addr)
				}),
			},
			{
				Name:      "status",
				Usage:     "Show a university's verification status",
				ArgsUsage: "<university address>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					addr, err := addressArg(cCtx)
					if err != nil {
						return err
					}
					return c.UniversityStatus(cCtx.Context, addr)
				}),
			},
			{
				Name:  "issue",
				Usage: "Issue a certificate",
				Flags: []cli.Flag{flagStudent, flagStudentName, flagCourse, flagGrade, flagCompletionDate, flagTemplate},
				Action: run(func(c *Client, cCtx *cli.Context) error {
					req, err := issueRequest(cCtx)
					if err != nil {
						return err
					}
					var template []byte
					if path := cCtx.Path(flagTemplate.Name); path != "" {
						if template, err = os.ReadFile(path); err != nil {
							return fmt.Errorf("could not read template: %w", err)
						}
					}
					return c.IssueCertificate(cCtx.Context, req, template)
				}),
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a certificate",
				ArgsUsage: "<certificate id>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					return c.RevokeCertificate(cCtx.Context, id)
				}),
			},
			{
				Name:      "get",
				Usage:     "Verify a certificate by id",
				ArgsUsage: "<certificate id>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					return c.VerifyCertificate(cCtx.Context, id)
				}),
			},
			{
				Name:      "get-by-hash",
				Usage:     "Verify a certificate by document content hash",
				ArgsUsage: "<content hash>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected a content hash")
					}
					return c.VerifyCertificateByHash(cCtx.Context, cCtx.Args().First())
				}),
			},
			{
				Name:      "student",
				Usage:     "List a student's certificates",
				ArgsUsage: "<student address>",
				Action: run(func(c *Client, cCtx *cli.Context) error {
					addr, err := addressArg(cCtx)
					if err != nil {
						return err
					}
					return c.StudentCertificates(cCtx.Context, addr)
				}),
			},
			{
				Name:   "total",
				Usage:  "Show the number of issued certificates",
				Action: run(func(c *Client, cCtx *cli.Context) error { return c.TotalCertificates(cCtx.Context) }),
			},
			{
				Name:      "document",
				Usage:     "Download a certificate document",
				ArgsUsage: "<content hash>",
				Flags:     []cli.Flag{flagOutput},
				Action: run(func(c *Client, cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected a content hash")
					}
					if path := cCtx.Path(flagOutput.Name); path != "" {
						f, err := os.Create(path)
						if err != nil {
							return err
						}
						defer f.Close()
						c.Out = f
					}
					return c.Document(cCtx.Context, cCtx.Args().First())
				}),
			},
			{
				Name:   "check-certificates",
				Usage:  "List every issued certificate with its validity",
				Action: run(func(c *Client, cCtx *cli.Context) error { return c.CheckCertificates(cCtx.Context) }),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(fn func(c *Client, cCtx *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c := NewClient(clients.NewRegistryClient(cCtx.String(flags.ServerAddrFlag.Name), cCtx.Duration(flagTimeout.Name)), os.Stdout)
		return fn(c, cCtx)
	}
}

func addressArg(cCtx *cli.Context) (common.Address, error) {
	raw := cCtx.Args().First()
	if cCtx.NArg() != 1 || !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("expected an address, got %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func idArg(cCtx *cli.Context) (interfaces.CertificateID, error) {
	if cCtx.NArg() != 1 {
		return 0, errors.New("expected a certificate id")
	}
	id, err := strconv.ParseUint(cCtx.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid certificate id %q", cCtx.Args().First())
	}
	return interfaces.CertificateID(id), nil
}

func issueRequest(cCtx *cli.Context) (api.IssueCertificateRequest, error) {
	completion, err := api.ParseTimestamp(cCtx.String(flagCompletionDate.Name))
	if err != nil {
		return api.IssueCertificateRequest{}, err
	}
	return api.IssueCertificateRequest{
		StudentAddress: cCtx.String(flagStudent.Name),
		StudentName:    cCtx.String(flagStudentName.Name),
		CourseName:     cCtx.String(flagCourse.Name),
		Grade:          cCtx.String(flagGrade.Name),
		CompletionDate: completion,
	}, nil
}

// Client runs admin commands and prints their results as JSON.
type Client struct {
	API *clients.RegistryClient
	Out io.Writer
}

func NewClient(c *clients.RegistryClient, out io.Writer) *Client {
	return &Client{API: c, Out: out}
}

func (c *Client) print(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *Client) Health(ctx context.Context) error {
	return c.print(c.API.Health(ctx))
}

func (c *Client) RegisterUniversity(ctx context.Context, name, registrationNumber string) error {
	return c.print(c.API.RegisterUniversity(ctx, name, registrationNumber))
}

func (c *Client) VerifyUniversity(ctx context.Context, university common.Address) error {
	return c.print(c.API.VerifyUniversity(ctx, university))
}

func (c *Client) UniversityStatus(ctx context.Context, university common.Address) error {
	return c.print(c.API.UniversityStatus(ctx, university))
}

func (c *Client) IssueCertificate(ctx context.Context, req api.IssueCertificateRequest, template []byte) error {
	return c.print(c.API.IssueCertificate(ctx, req, template))
}

func (c *Client) RevokeCertificate(ctx context.Context, id interfaces.CertificateID) error {
	return c.print(c.API.RevokeCertificate(ctx, id))
}

func (c *Client) VerifyCertificate(ctx context.Context, id interfaces.CertificateID) error {
	return c.print(c.API.VerifyCertificate(ctx, id))
}

func (c *Client) VerifyCertificateByHash(ctx context.Context, contentHash string) error {
	return c.print(c.API.VerifyCertificateByHash(ctx, contentHash))
}

func (c *Client) StudentCertificates(ctx context.Context, student common.Address) error {
	certs, err := c.API.StudentCertificates(ctx, student)
	return c.print(api.StudentCertificatesResponse{Certificates: certs}, err)
}

func (c *Client) TotalCertificates(ctx context.Context) error {
	total, err := c.API.TotalCertificates(ctx)
	return c.print(api.TotalCertificatesResponse{Total: total}, err)
}

func (c *Client) Document(ctx context.Context, contentHash string) error {
	doc, err := c.API.Document(ctx, contentHash)
	if err != nil {
		return err
	}
	_, err = c.Out.Write(doc)
	return err
}

// CheckCertificates prints one line per allocated id with its validity.
func (c *Client) CheckCertificates(ctx context.Context) error {
	total, err := c.API.TotalCertificates(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "Total certificates: %d\n", total)

	for id := interfaces.CertificateID(1); uint64(id) <= total; id++ {
		v, err := c.API.VerifyCertificate(ctx, id)
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			fmt.Fprintf(c.Out, "#%d: missing\n", id)
			continue
		case err != nil:
			return fmt.Errorf("certificate %d: %w", id, err)
		}

		status := "valid"
		if !v.IsValid {
			status = "revoked"
		}
		fmt.Fprintf(c.Out, "#%d: %s, %s, %s (%s) ipfs:%s\n",
			id, status, v.Certificate.StudentName, v.Certificate.CourseName, v.Certificate.University, v.Certificate.IPFSHash)
	}
	return nil
}
