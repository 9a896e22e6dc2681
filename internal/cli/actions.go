package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pay2run/pay2run"
)

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Manage monetized Actions"}
	root.AddCommand(s.newActionsCreateCommand())
	root.AddCommand(s.newActionsGetCommand())
	root.AddCommand(s.newActionsListCommand())
	root.AddCommand(s.newActionsUpdateCommand())
	root.AddCommand(s.newActionsDeleteCommand())
	return root
}

func (s *runtimeState) newActionsCreateCommand() *cobra.Command {
	var (
		file        string
		name        string
		description string
		targetURL   string
		method      string
		price       string
		currency    string
		headers     []string
		secrets     []string
		network     string
		chainID     string
		cluster     string
		recipient   string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new Action",
		RunE: func(cmd *cobra.Command, args []string) error {
			var input pay2run.ActionInput
			if file != "" {
				buf, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read action file: %w", err)
				}
				if err := json.Unmarshal(buf, &input); err != nil {
					return fmt.Errorf("parse action file: %w", err)
				}
			} else {
				headerMap, err := parseKeyValues(headers, "header")
				if err != nil {
					return err
				}
				secretMap, err := parseKeyValues(secrets, "secret")
				if err != nil {
					return err
				}
				payment, err := buildPaymentConfig(network, chainID, cluster, recipient, token)
				if err != nil {
					return err
				}
				input = pay2run.ActionInput{
					Name:        name,
					Description: description,
					TargetURL:   targetURL,
					Method:      method,
					Headers:     headerMap,
					Secrets:     secretMap,
					Price:       price,
					Currency:    currency,
					Payment:     payment,
				}
			}

			client, err := s.manageClient()
			if err != nil {
				return err
			}
			created, err := client.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			return s.render(created)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with the full action definition")
	cmd.Flags().StringVar(&name, "name", "", "Action name")
	cmd.Flags().StringVar(&description, "description", "", "Action description")
	cmd.Flags().StringVar(&targetURL, "target-url", "", "Upstream endpoint the platform invokes")
	cmd.Flags().StringVar(&method, "method", "POST", "HTTP method for the upstream endpoint")
	cmd.Flags().StringVar(&price, "price", "", "Price per call (decimal string)")
	cmd.Flags().StringVar(&currency, "currency", "USDC", "Billing currency")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Header template as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&secrets, "secret", nil, "Secret header as key=value (repeatable)")
	cmd.Flags().StringVar(&network, "network", "", "Payment network (evm or solana)")
	cmd.Flags().StringVar(&chainID, "chain-id", "", "EVM chain ID (evm only)")
	cmd.Flags().StringVar(&cluster, "cluster", "mainnet-beta", "Solana cluster (solana only)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Payment recipient address")
	cmd.Flags().StringVar(&token, "token", "", "ERC-20 contract or SPL mint (empty for native asset)")
	return cmd
}

func buildPaymentConfig(network, chainID, cluster, recipient, token string) (pay2run.CreatorPaymentConfig, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case pay2run.NetworkEVM:
		return pay2run.CreatorPaymentConfig{
			EVM: &pay2run.EVMPaymentConfig{
				ChainID:   chainID,
				Recipient: recipient,
				Token:     token,
			},
		}, nil
	case pay2run.NetworkSolana:
		return pay2run.CreatorPaymentConfig{
			Solana: &pay2run.SolanaPaymentConfig{
				Cluster:   cluster,
				Recipient: recipient,
				SPLToken:  token,
			},
		}, nil
	case "":
		return pay2run.CreatorPaymentConfig{}, fmt.Errorf("--network is required (evm or solana), or use --file")
	default:
		return pay2run.CreatorPaymentConfig{}, fmt.Errorf("unsupported network %q, want evm or solana", network)
	}
}

func (s *runtimeState) newActionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <action-id>",
		Short: "Fetch one Action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.manageClient()
			if err != nil {
				return err
			}
			action, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.render(action)
		},
	}
}

func (s *runtimeState) newActionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all Actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.manageClient()
			if err != nil {
				return err
			}
			actions, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			return s.render(actions)
		},
	}
}

func (s *runtimeState) newActionsUpdateCommand() *cobra.Command {
	var (
		name        string
		description string
		targetURL   string
		method      string
		price       string
		currency    string
		headers     []string
		secrets     []string
	)

	cmd := &cobra.Command{
		Use:   "update <action-id>",
		Short: "Update fields of an Action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch pay2run.ActionPatch
			changed := false
			if cmd.Flags().Changed("name") {
				patch.Name = &name
				changed = true
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
				changed = true
			}
			if cmd.Flags().Changed("target-url") {
				patch.TargetURL = &targetURL
				changed = true
			}
			if cmd.Flags().Changed("method") {
				patch.Method = &method
				changed = true
			}
			if cmd.Flags().Changed("price") {
				patch.Price = &price
				changed = true
			}
			if cmd.Flags().Changed("currency") {
				patch.Currency = &currency
				changed = true
			}
			if cmd.Flags().Changed("header") {
				headerMap, err := parseKeyValues(headers, "header")
				if err != nil {
					return err
				}
				patch.Headers = headerMap
				changed = true
			}
			if cmd.Flags().Changed("secret") {
				secretMap, err := parseKeyValues(secrets, "secret")
				if err != nil {
					return err
				}
				patch.Secrets = secretMap
				changed = true
			}
			if !changed {
				return fmt.Errorf("no fields to update, pass at least one flag")
			}

			client, err := s.manageClient()
			if err != nil {
				return err
			}
			updated, err := client.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return s.render(updated)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New action name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&targetURL, "target-url", "", "New upstream endpoint")
	cmd.Flags().StringVar(&method, "method", "", "New HTTP method")
	cmd.Flags().StringVar(&price, "price", "", "New price per call")
	cmd.Flags().StringVar(&currency, "currency", "", "New billing currency")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Replacement header template as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&secrets, "secret", nil, "Replacement secret header as key=value (repeatable)")
	return cmd
}

func (s *runtimeState) newActionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <action-id>",
		Short: "Delete an Action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.manageClient()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(s.runner.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}
