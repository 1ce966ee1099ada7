package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var daemonAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "daocli",
		Short: "多签DAO会话命令行客户端",
		Long:  `驱动daod守护进程HTTP接口的一次性命令行工具`,
	}

	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://localhost:8080", "daod服务地址")

	rootCmd.AddCommand(
		statusCmd(),
		selectCmd(),
		similarCmd(),
		recentCmd(),
		connectCmd(),
		disconnectCmd(),
		proposeCmd(),
		voteCmd(),
		executeCmd(),
		originateCmd(),
		uploadCmd(),
		dismissCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func client() *resty.Client {
	return resty.New().SetBaseURL(daemonAddr)
}

// printResponse 格式化输出响应体
func printResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}

	var pretty json.RawMessage = resp.Body()
	out, marshalErr := json.MarshalIndent(pretty, "", "  ")
	if marshalErr != nil {
		fmt.Println(string(resp.Body()))
	} else {
		fmt.Println(string(out))
	}

	if resp.IsError() {
		return fmt.Errorf("请求失败，状态码 %d", resp.StatusCode())
	}
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看当前会话快照",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Get("/api/v1/snapshot"))
		},
	}
}

func selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <KT1地址>",
		Short: "选中目标合约",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().
				SetBody(map[string]string{"address": args[0]}).
				Post("/api/v1/contract/select"))
		},
	}
}

func similarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similar",
		Short: "发现与当前合约同代码的其他部署",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Get("/api/v1/contract/similar"))
		},
	}
}

func recentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "查看最近使用过的合约",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Get("/api/v1/contract/recent"))
		},
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "连接钱包",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Post("/api/v1/wallet/connect"))
		},
	}
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "断开钱包",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Post("/api/v1/wallet/disconnect"))
		},
	}
}

func proposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propose <类型> <负载JSON>",
		Short: "提交提案",
		Long: `提交指定类型的提案。类型与负载示例:
  text            '{"text":"hello"}'
  transfer_mutez  '{"transfers":[{"amount":1000000,"destination":"tz1..."}]}'
  minimum_votes   '{"minimum_votes":2}'
  add_user        '{"user":"tz1..."}'
  lambda          '{"lambda":{"prim":"UNIT"}}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("负载不是合法的JSON: %s", args[1])
			}
			return printResponse(client().R().
				SetBody(map[string]interface{}{
					"kind":    args[0],
					"payload": json.RawMessage(args[1]),
				}).
				Post("/api/v1/proposals"))
		},
	}
	return cmd
}

func voteCmd() *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:   "vote <提案ID>",
		Short: "对提案投票",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("提案ID无效: %s", args[0])
			}
			return printResponse(client().R().
				SetBody(map[string]bool{"approve": approve}).
				Post(fmt.Sprintf("/api/v1/proposals/%s/vote", args[0])))
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", true, "赞成票（--approve=false为反对票）")
	return cmd
}

func executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <提案ID>",
		Short: "执行已达票数的提案",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("提案ID无效: %s", args[0])
			}
			return printResponse(client().R().
				Post(fmt.Sprintf("/api/v1/proposals/%s/execute", args[0])))
		},
	}
}

func originateCmd() *cobra.Command {
	var (
		name           string
		users          []string
		minimumVotes   int64
		expirationDays int64
	)
	cmd := &cobra.Command{
		Use:   "originate",
		Short: "部署新的多签合约",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().
				SetBody(map[string]interface{}{
					"name":                 name,
					"users":                users,
					"minimum_votes":        minimumVotes,
					"expiration_time_days": expirationDays,
				}).
				Post("/api/v1/originate"))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "合约名称")
	cmd.Flags().StringSliceVar(&users, "user", nil, "成员地址（可重复）")
	cmd.Flags().Int64Var(&minimumVotes, "min-votes", 1, "最小票数")
	cmd.Flags().Int64Var(&expirationDays, "expiration-days", 7, "提案过期时间（天）")
	return cmd
}

func uploadCmd() *cobra.Command {
	var metadata bool
	cmd := &cobra.Command{
		Use:   "upload <文件路径>",
		Short: "上传文件至IPFS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取文件失败: %w", err)
			}

			if metadata {
				if !json.Valid(content) {
					return fmt.Errorf("元数据文件不是合法的JSON: %s", args[0])
				}
				return printResponse(client().R().
					SetHeader("Content-Type", "application/json").
					SetBody(content).
					Post("/api/v1/upload/metadata"))
			}

			return printResponse(client().R().
				SetBody(content).
				Post("/api/v1/upload/file"))
		},
	}
	cmd.Flags().BoolVar(&metadata, "metadata", false, "作为JSON元数据上传")
	return cmd
}

func dismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss",
		Short: "关闭当前临时消息",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(client().R().Post("/api/v1/message/dismiss"))
		},
	}
}
