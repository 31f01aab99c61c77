// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (scope:action:payload)
//   - Color-coded notice panels (error/success/warning/info)
//
// Design goals:
//   - Safe by default for Telegram ParseMode="HTML" (auto escaping)
//   - User-visible failures are always a formatted panel, never a raw fault
package tgui
