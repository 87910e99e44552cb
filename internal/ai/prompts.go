// prompts.go - Prompt templates for OCR, attribute extraction, proofreading and quantity judgment

package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OCRPrompt asks for a faithful transcription of a product listing image
const OCRPrompt = `あなたは、商品広告画像のテキストを人間が読む通りに正確に書き起こす専門家です。
あなたのタスク:
渡された画像の中から全てのテキストを読み取り、人間が目で追う自然な順序（上から下、左から右）に並べ替えてください。そして、単語や意味のまとまり（フレーズ）ごとに改行を入れて出力してください。
書き起こしと改行のルール:
1. 読む順序は厳密に「上から下へ、左から右へ」です。画像のレイアウトを最優先してください。
2. デザイン上の理由で分離している文字（例：「ギ」と「ュ」と「っと」）は、意味が通じるように自然な1つの単語（例：「ギュっと」）として結合してください。
3. 結合した後の単語やフレーズは、それぞれ独立した行になるように改行(\n)を挿入してください。
文字の正規化ルール:
1. 記号の統一: 「×」(掛ける記号)や「X」(大文字のエックス)は、すべて「x」(半角小文字のエックス)に統一してください。
2. 全角・半角の統一: 全角の英数字は、すべて対応する半角の文字に統一してください。(例: 「Ａ」→「A」、「３」→「3」)
絶対的なルール:
1. 画像の視覚的なレイアウトが絶対的な正解です。
2. 画像に含まれる全ての文字・数字・記号は、一切省略せず、推測して文字を追加することも絶対にしないでください。
3. 元のテキストに含まれる文字の種類（ひらがな、カタカナなど「っ」と「ッ」）や大きさ（例: 「っ」と「つ」）は、絶対に変更しないでください。
4. 応答形式: 抽出したテキストのみを返してください。前置きや説明、マークダウンは一切含めないでください。
5. テキストなしの場合: 画像にテキストが一切含まれていないと判断した場合のみ、空の文字列を返してください。
`

const attributePromptTemplate = `あなたは、テキストから商品の「数量」や「重量」に関する部分のみを正確に抜き出す専門家です。
以下のルールに従って、与えられたテキストから内容量を示す数値と単位の部分だけを抽出してください。

### ルール
1. 抽出対象: 「〇個」「〇ml×〇個」「〇kg」「〇~〇本」のような、数量、重さ、個数を示す部分のみを抽出します。
2. 商品名は除外: 「いちごソルベ」「安納芋」といった商品名は絶対に含めないでください。
3. 完全な維持: 抽出するテキストは、元のテキストに含まれる文字、数字、記号、改行(\n)を完全に維持してください。一文字も変更、追加、削除してはいけません。
4. 除外対象: 「お届け内容」「セット内容」といった見出しや、商品の特徴・産地などの説明的な文章は抽出しないでください。
5. 出力形式: 抽出したテキストだけを返してください。余計な説明や前置きは一切含めないでください。
6. 該当なしの場合: 内容量に関する記述が見つからない場合は、必ず空の文字列を返してください。

### 例
- 元テキスト: "お届け内容\nいちごソルベ\n90ml×6個"
- 抽出結果: "90ml×6個"
---
元テキスト:
"%s"
`

const typoPromptTemplate = `あなたは日本語の「誤字」と「脱字」を厳密に発見する校正AIです。以下の広告文テキストをチェックしてください。
ルール:
1. 表現、スタイル、句読点、文法に関する指摘は絶対にしないでください。
2. 数字や広告デザインによる意図的な語順は問題ないと判断してください。
3. テキストは単語がスペースなしで連結されています。単語の区切りがないことで不自然に見える文字列は、誤字脱字として指摘しないでください。
4. 明確な誤字のみを指摘してください。
判断:
- 上記ルールに反する問題が一切なければ {"status": "ok"} を返してください。
- 誤字脱字がある場合のみ、{"status": "error", "message": "「(問題のある単語のみ)」を確認"} という形式で返してください。
- 必ずJSON形式で応答してください。
---テキスト---
%s`

const quantityPromptTemplate = `あなたは、商品の内容量テキストを解釈し、意味が同じかどうかを判定する専門家AIです。
以下の手順に従って、「基準テキスト」と「比較テキストリスト」の内容が実質的に同じか判断してください。
### 手順
1. 要素の抽出: 各テキストから内容量を構成する「数値」と「単位」のペアを全て抽出します。（例：「90ml×6個」からは「90ml」と「6個」）
2. 構造化: 抽出した各要素をJSONオブジェクトに変換します。数値が範囲（例：4～6本）の場合は "range": "4-6" のように表現します。
3. 正規化: 変換したJSONオブジェクトの配列を、unit（単位）の順で並べ替えます。「2kg 4~6本」と「4~6本 2kg」は同じ表現になります。
4. 比較: 基準テキストの正規化JSONと、比較テキストリストの各テキストの正規化JSONが、全て完全に一致するかを比較します。
5. 最終判断: 全て一致した場合のみ {"result": "ok"}、一つでも不一致があれば {"result": "ng"} とします。
### 絶対的なルール
* 計算の禁止: 表記されている数値をそのまま使ってください。絶対に計算してはいけません。「1.2kg」と「600g×2」は表記が異なるため不一致です。
* 記号の統一: 範囲を示す記号（~, ～, –, -）は、全て半角ハイフン - に統一して range を作ります。
### 例
- 基準テキスト: "2kg(4～6本)"
- 比較テキストリスト: ["2kg\n4-6本"]
- 応答: {"result": "ok"}
---
- 基準テキスト: "合計1.2kg"
- 比較テキストリスト: ["600g×2パック"]
- 応答: {"result": "ng"}
---
それでは、以下のテキストを比較してください。
### 基準テキスト
%s
### 比較テキストリスト
%s
`

// typoSeparator joins the texts of one group in the proofreading prompt
const typoSeparator = "\n---\n"

// AttributePrompt builds the content extraction prompt for one text
func AttributePrompt(text string) string {
	return fmt.Sprintf(attributePromptTemplate, text)
}

// TypoPrompt builds the proofreading prompt over every text of a group
func TypoPrompt(texts []string) string {
	return fmt.Sprintf(typoPromptTemplate, strings.Join(texts, typoSeparator))
}

// QuantityPrompt builds the quantity judgment prompt
func QuantityPrompt(reference string, portals []string) string {
	list, err := json.Marshal(portals)
	if err != nil {
		list = []byte("[]")
	}
	return fmt.Sprintf(quantityPromptTemplate, reference, list)
}
