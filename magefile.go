//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("StockFetch 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build     - 构建所有二进制文件")
	fmt.Println("  mage test      - 运行所有测试")
	fmt.Println("  mage testUnit  - 运行单元测试")
	fmt.Println("  mage coverage  - 生成测试覆盖率报告")
	fmt.Println("  mage lint      - 运行代码检查")
	fmt.Println("  mage clean     - 清理构建产物")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"fetchd", "./cmd/fetchd"},
		{"api_server", "./cmd/api_server"},
		{"influx_collector", "./cmd/influx_collector"},
	}

	fmt.Println("🚀 开始构建 StockFetch 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = os.Environ()
		cmd.Env = append(cmd.Env, "CGO_ENABLED=0")

		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d KB\n", target.name, info.Size()/1024)
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试
func Test() error {
	mg.Deps(TestUnit)
	return nil
}

// TestUnit 运行单元测试
func TestUnit() error {
	fmt.Println("🧪 运行单元测试...")

	cmd := exec.Command("go", "test", "./pkg/...", "-v", "-timeout=5m")
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "[no test files]") &&
			!strings.Contains(string(output), "FAIL") &&
			!strings.Contains(string(output), "build failed") {
			fmt.Println("✅ 单元测试通过! (部分包没有测试文件)")
			return nil
		}
		fmt.Printf("单元测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("单元测试失败: %v", err)
	}

	fmt.Println("✅ 单元测试通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll("./reports", 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	cmd := exec.Command("go", "test", "./pkg/...", "-coverprofile=./reports/coverage.out", "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-html=./reports/coverage.out", "-o", "./reports/coverage.html"); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-func=./reports/coverage.out"); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告生成完成!")
	return nil
}

// Lint 运行代码检查并自动修复格式问题
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	cmd := exec.Command("gofmt", "-l", ".")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}

	if len(strings.TrimSpace(string(output))) > 0 {
		fmt.Printf("发现代码格式问题:\n%s\n", string(output))
		fmt.Println("🛠️  正在自动修复格式问题...")

		if fixOutput, fixErr := exec.Command("gofmt", "-w", ".").CombinedOutput(); fixErr != nil {
			return fmt.Errorf("自动修复失败: %v\n输出: %s", fixErr, string(fixOutput))
		}
		fmt.Println("✅ 代码格式已自动修复!")
	}

	fmt.Println("✅ 代码格式检查通过!")
	return nil
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}

	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll("./reports/coverage.out"); err != nil && !os.IsNotExist(err) {
		fmt.Printf("警告: 清理覆盖率文件失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}
